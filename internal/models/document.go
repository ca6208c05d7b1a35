package models

import "sort"

// Document describes a file selected in the wizard. StorageRef locates its
// bytes for the uploader.
type Document struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MediaType  string `json:"mediaType,omitempty"`
	StorageRef string `json:"storageRef"`
}

// DocumentSet maps document type key (e.g. "national_id") to its file.
type DocumentSet map[string]Document

// Types returns the document type keys in sorted order.
func (d DocumentSet) Types() []string {
	types := make([]string, 0, len(d))
	for t := range d {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// UploadResult reports what one upload call did.
type UploadResult struct {
	Uploaded []string `json:"uploaded"`
	Skipped  []string `json:"skipped"`
}

// ExistingDocument is an entry from GET /applications/{id}/documents.
type ExistingDocument struct {
	ID           string `json:"id"`
	DocumentType string `json:"documentType"`
	Name         string `json:"name"`
}
