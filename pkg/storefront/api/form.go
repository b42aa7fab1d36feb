package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/staging"
)

const maxFieldBytes = 1 << 20

// contentForm is a decoded create or update request. Files are staged on
// disk; close must be called once the request is done with them.
type contentForm struct {
	values  map[string]string
	file    *staging.File
	cover   *staging.File
	gallery []*staging.File

	opened []*os.File
}

// value returns the first present field among names
func (f *contentForm) value(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := f.values[strings.ToLower(n)]; ok {
			return v, true
		}
	}
	return "", false
}

func (f *contentForm) optional(names ...string) *string {
	v, ok := f.value(names...)
	if !ok {
		return nil
	}
	return &v
}

func (f *contentForm) flag(names ...string) bool {
	v, ok := f.value(names...)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (f *contentForm) upload(sf *staging.File) (*storefront.FileUpload, error) {
	if sf == nil {
		return nil, nil
	}
	fh, err := sf.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: reopening staged file: %w", storefront.ErrUpload, err)
	}
	f.opened = append(f.opened, fh)
	return &storefront.FileUpload{Name: sf.Name, MimeType: sf.MimeType, Reader: fh}, nil
}

func (f *contentForm) uploads() (file, cover *storefront.FileUpload, gallery []storefront.FileUpload, err error) {
	if file, err = f.upload(f.file); err != nil {
		return nil, nil, nil, err
	}
	if cover, err = f.upload(f.cover); err != nil {
		return nil, nil, nil, err
	}
	for _, sf := range f.gallery {
		up, err := f.upload(sf)
		if err != nil {
			return nil, nil, nil, err
		}
		gallery = append(gallery, *up)
	}
	return file, cover, gallery, nil
}

// close releases open handles and removes every staged file
func (f *contentForm) close() error {
	var errs []error
	for _, fh := range f.opened {
		errs = append(errs, fh.Close())
	}
	staged := append([]*staging.File{f.file, f.cover}, f.gallery...)
	errs = append(errs, staging.RemoveAll(staged))
	return errors.Join(errs...)
}

// parseContentForm reads a multipart, JSON or urlencoded body. Multipart
// file parts are streamed to the staging area one at a time; the body is
// never buffered in memory.
func parseContentForm(r *http.Request, area *staging.Area) (*contentForm, error) {
	form := &contentForm{values: map[string]string{}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := form.readMultipart(r, area); err != nil {
			form.close()
			return nil, err
		}
	case "application/json":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, bodyError(err)
			}
			return nil, &storefront.ValidationError{Message: "malformed JSON body"}
		}
		for k, v := range body {
			if v == nil {
				continue
			}
			form.values[strings.ToLower(k)] = fmt.Sprint(v)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				form.values[strings.ToLower(k)] = v[0]
			}
		}
	}
	return form, nil
}

func (f *contentForm) readMultipart(r *http.Request, area *staging.Area) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return &storefront.ValidationError{Message: "malformed multipart body"}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return bodyError(err)
		}

		field := strings.TrimSuffix(part.FormName(), "[]")
		if part.FileName() == "" {
			data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			part.Close()
			if err != nil {
				return bodyError(err)
			}
			if len(data) > maxFieldBytes {
				return &storefront.ValidationError{Field: field, Message: "field too long"}
			}
			if _, seen := f.values[strings.ToLower(field)]; !seen {
				f.values[strings.ToLower(field)] = string(data)
			}
			continue
		}

		slot, err := storefront.ParseSlot(field)
		if err != nil {
			part.Close()
			return &storefront.ValidationError{Field: field, Message: "unknown file field"}
		}

		staged, err := area.Stage(part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			return bodyError(err)
		}

		switch slot {
		case storefront.SlotFile:
			if f.file != nil {
				staged.Remove()
				return &storefront.ValidationError{Field: field, Message: "only one file is allowed"}
			}
			f.file = staged
		case storefront.SlotCover:
			if f.cover != nil {
				staged.Remove()
				return &storefront.ValidationError{Field: field, Message: "only one cover image is allowed"}
			}
			f.cover = staged
		case storefront.SlotGallery:
			f.gallery = append(f.gallery, staged)
		}
	}
}
