package catalog

// Item represents one catalog entry with its mutable field groups
type Item struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	CollectionIDs []string `json:"collection_ids"`
	Images        []Image  `json:"images"`
	SchemaMarkup  string   `json:"schema_markup"`
}

// Image represents one item image with its alt text
type Image struct {
	ID      string `json:"id"`
	Src     string `json:"src"`
	AltText string `json:"alt_text"`
}

// ImageByID returns the image with the given id, or nil
func (i *Item) ImageByID(imageID string) *Image {
	for idx := range i.Images {
		if i.Images[idx].ID == imageID {
			return &i.Images[idx]
		}
	}
	return nil
}
