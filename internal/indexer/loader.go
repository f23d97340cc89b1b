package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

// Document is one unit of content to index: an identifier, the text that
// gets embedded, and untyped metadata mapped onto backend dynamic fields.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// LoadJSON reads a JSON array of documents from path. Each object needs a
// "content" (or "text") field; "id" is generated when absent. All other
// fields become metadata.
func LoadJSON(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: expected a JSON array of objects: %w", path, err)
	}

	docs := make([]Document, 0, len(raw))
	for i, obj := range raw {
		doc := Document{Metadata: make(map[string]any)}
		for k, v := range obj {
			switch k {
			case "id":
				doc.ID = fmt.Sprintf("%v", v)
			case "content", "text":
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("document %d: %s must be a string", i, k)
				}
				doc.Content = s
			default:
				doc.Metadata[k] = v
			}
		}
		if doc.Content == "" {
			return nil, fmt.Errorf("document %d: missing content", i)
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadPDF extracts text from a PDF, producing one document per page. Pages
// with no extractable text are skipped.
func LoadPDF(path string) ([]Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var docs []Document
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		var buf bytes.Buffer
		texts := page.Content().Text
		for _, t := range texts {
			buf.WriteString(t.S)
		}
		content := strings.TrimSpace(buf.String())
		if content == "" {
			continue
		}
		docs = append(docs, Document{
			ID:      uuid.NewString(),
			Content: content,
			Metadata: map[string]any{
				"source": path,
				"page":   i,
			},
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: no extractable text", path)
	}
	return docs, nil
}

// dynamicFields maps untyped metadata onto backend dynamic-field names by
// value type: strings get _s, integers _i, floats _f, booleans _b,
// timestamps _dt, and string lists _ss. Keys already carrying a known
// suffix pass through unchanged.
func dynamicFields(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if hasDynamicSuffix(k) {
			out[k] = v
			continue
		}
		switch val := v.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				out[k+"_dt"] = t.UTC().Format(time.RFC3339)
			} else {
				out[k+"_s"] = val
			}
		case bool:
			out[k+"_b"] = val
		case int:
			out[k+"_i"] = val
		case int64:
			out[k+"_i"] = val
		case float64:
			if val == float64(int64(val)) {
				out[k+"_i"] = int64(val)
			} else {
				out[k+"_f"] = val
			}
		case []string:
			out[k+"_ss"] = val
		case []any:
			ss := make([]string, len(val))
			for i, item := range val {
				ss[i] = fmt.Sprintf("%v", item)
			}
			out[k+"_ss"] = ss
		default:
			out[k+"_s"] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

var dynamicSuffixes = []string{"_s", "_i", "_f", "_b", "_dt", "_ss", "_t"}

func hasDynamicSuffix(key string) bool {
	for _, suf := range dynamicSuffixes {
		if strings.HasSuffix(key, suf) {
			return true
		}
	}
	return false
}
