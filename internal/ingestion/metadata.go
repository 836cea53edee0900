package ingestion

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DocumentMeta holds the title, doc type, and date inferred from a document's
// file path and target collection. CLI flags take precedence over inferred
// values — this is the best-effort fallback when the user doesn't specify
// explicit metadata.
type DocumentMeta struct {
	// Title is the human-readable document title derived from the filename.
	Title string
	// DocType classifies the document by its collection (Law Reference,
	// Case History, Client Document).
	DocType string
	// Date is an ISO date found in the filename, or empty.
	Date string
	// SourceFile is the base filename of the document.
	SourceFile string
}

// collectionDocTypes maps collection names to their display doc type.
var collectionDocTypes = map[string]string{
	"law_reference_db": "Law Reference",
	"case_history_db":  "Case History",
	"client_cases_db":  "Client Document",
}

// datePattern matches an ISO date (YYYY-MM-DD) embedded in a filename.
var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// InferMetadata derives document metadata from the file path and collection.
//
// The title comes from the filename with its extension stripped and
// separators replaced: "labor_code_2023-01-15.txt" → "labor code 2023-01-15".
// An ISO date anywhere in the filename becomes the document date.
func InferMetadata(path, collection string) DocumentMeta {
	base := filepath.Base(path)

	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	// Restore dashes inside dates that the separator replacement broke.
	if d := datePattern.FindString(base); d != "" {
		broken := strings.NewReplacer("-", " ").Replace(d)
		title = strings.Replace(title, broken, d, 1)
	}

	m := DocumentMeta{
		Title:      strings.TrimSpace(title),
		DocType:    collectionDocTypes[collection],
		SourceFile: base,
	}
	if m.DocType == "" {
		m.DocType = "Document"
	}
	m.Date = datePattern.FindString(base)
	return m
}

// toMap renders the metadata as the flat string map stored on each chunk.
// Empty fields are omitted so downstream fallback chains keep working.
func (m DocumentMeta) toMap() map[string]string {
	md := map[string]string{
		"title":       m.Title,
		"doc_type":    m.DocType,
		"source_file": m.SourceFile,
	}
	if m.Date != "" {
		md["date"] = m.Date
	}
	return md
}
