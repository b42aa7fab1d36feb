package storefront

import (
	"net/url"
	"strings"
)

// Slot is one of the blob reference roles on a content record.
type Slot string

const (
	SlotFile    Slot = "file"
	SlotCover   Slot = "cover"
	SlotGallery Slot = "gallery"
)

// slotAliases keeps the field names older clients send.
var slotAliases = map[string]Slot{
	"file":             SlotFile,
	"primary":          SlotFile,
	"fileurl":          SlotFile,
	"cover":            SlotCover,
	"coverimage":       SlotCover,
	"gamepicture":      SlotCover,
	"gallery":          SlotGallery,
	"galleryimages":    SlotGallery,
	"gameplaypictures": SlotGallery,
}

// ParseSlot resolves a slot name or alias, case-insensitively.
func ParseSlot(name string) (Slot, error) {
	if slot, ok := slotAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return slot, nil
	}
	return "", &SlotError{Name: name}
}

// Catalog holds the record-shape rules that vary between deployments.
type Catalog struct {
	Categories        []string
	MaxGalleryImages  int
	RequireCoverImage bool
}

// DefaultCatalog returns the stock category set and gallery cap.
func DefaultCatalog() Catalog {
	return Catalog{
		Categories:        []string{"Games", "Movies", "Images", "Documents"},
		MaxGalleryImages:  30,
		RequireCoverImage: true,
	}
}

// NormalizeCategory returns the configured spelling of category.
func (c Catalog) NormalizeCategory(category string) (string, bool) {
	category = strings.TrimSpace(category)
	for _, known := range c.Categories {
		if strings.EqualFold(known, category) {
			return known, true
		}
	}
	return "", false
}

func (c Catalog) validateCategory(category string) (string, error) {
	if strings.TrimSpace(category) == "" {
		return "", &ValidationError{Field: "category", Message: "is required"}
	}
	normalized, ok := c.NormalizeCategory(category)
	if !ok {
		return "", &ValidationError{
			Field:   "category",
			Message: "must be one of " + strings.Join(c.Categories, ", "),
		}
	}
	return normalized, nil
}

func (c Catalog) validateGalleryCount(n int) error {
	if c.MaxGalleryImages > 0 && n > c.MaxGalleryImages {
		return &ValidationError{
			Field:   "galleryImages",
			Message: "too many gallery images",
		}
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Message: "is required"}
	}
	return name, nil
}

func validateDownloadLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", nil
	}
	u, err := url.ParseRequestURI(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &ValidationError{Field: "downloadLink", Message: "must be an absolute http(s) URL"}
	}
	return link, nil
}

func validateUpload(field string, f *FileUpload) error {
	if f == nil {
		return nil
	}
	if f.Reader == nil {
		return &ValidationError{Field: field, Message: "has no content"}
	}
	return nil
}
