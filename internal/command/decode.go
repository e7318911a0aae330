package command

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Form field names accepted from the site.
const (
	FieldCompany      = "company"
	FieldSector       = "sector"
	FieldSlug         = "slug"
	FieldContext      = "context"
	FieldInstructions = "instructions"
	FieldLinks        = "links"
	FieldDocuments    = "documents"
	FieldDryRun       = "dry_run"
)

// DefaultMaxMemory is the multipart in-memory threshold; larger parts spill to disk.
const DefaultMaxMemory = 32 << 20

// ErrMalformed is returned when the request body is not a readable form.
var ErrMalformed = errors.New("malformed form body")

// Decode parses r into a validated Descriptor of the given kind. maxMemory
// bounds the combined size of the non-file fields.
func Decode(r *http.Request, kind Kind, maxMemory int64) (Descriptor, error) {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}

	form, err := readForm(r, maxMemory)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Kind:         kind,
		Company:      form.value(FieldCompany),
		Sector:       form.value(FieldSector),
		Slug:         form.value(FieldSlug),
		Context:      form.value(FieldContext),
		Instructions: form.value(FieldInstructions),
		Links:        ParseLinks(form.first(FieldLinks)),
		DryRun:       parseFlag(form.value(FieldDryRun)),
		Documents:    form.documents,
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// formData holds the decoded fields of one submission.
type formData struct {
	values    url.Values
	documents []Upload
}

func (f formData) first(key string) string { return f.values.Get(key) }

func (f formData) value(key string) string { return strings.TrimSpace(f.values.Get(key)) }

func readForm(r *http.Request, maxMemory int64) (formData, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(strings.ToLower(ct), "multipart/") {
		return readMultipart(r, maxMemory)
	}
	if err := r.ParseForm(); err != nil {
		return formData{}, parseError(err)
	}
	return formData{values: r.PostForm, documents: []Upload{}}, nil
}

// readMultipart walks the parts in order. A part is a file when its
// Content-Disposition carries a filename parameter, even an empty one;
// ParseMultipartForm would file filename="" parts as plain values.
func readMultipart(r *http.Request, maxMemory int64) (formData, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return formData{}, parseError(err)
	}

	form := formData{values: url.Values{}, documents: []Upload{}}
	remaining := maxMemory
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return formData{}, parseError(err)
		}

		name, filename, isFile := disposition(part)
		switch {
		case name == "":
		case isFile && name == FieldDocuments:
			content, err := io.ReadAll(part)
			if err != nil {
				_ = part.Close()
				return formData{}, parseError(fmt.Errorf("read upload %q: %w", filename, err))
			}
			form.documents = append(form.documents, Upload{Filename: filename, Content: content})
		case isFile:
			// Unknown file fields are drained and dropped.
			if _, err := io.Copy(io.Discard, part); err != nil {
				_ = part.Close()
				return formData{}, parseError(err)
			}
		default:
			b, err := io.ReadAll(io.LimitReader(part, remaining+1))
			if err != nil {
				_ = part.Close()
				return formData{}, parseError(err)
			}
			remaining -= int64(len(b))
			if remaining < 0 {
				_ = part.Close()
				return formData{}, fmt.Errorf("%w: form fields exceed %d bytes", ErrMalformed, maxMemory)
			}
			form.values.Add(name, string(b))
		}
		_ = part.Close()
	}
}

// disposition returns the form name and, for file parts, the raw filename.
func disposition(p *multipart.Part) (name, filename string, isFile bool) {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return p.FormName(), "", false
	}
	filename, isFile = params["filename"]
	return params["name"], filename, isFile
}

// parseError keeps body-size failures recognisable to the caller.
func parseError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func parseFlag(v string) bool {
	if strings.EqualFold(v, "on") || strings.EqualFold(v, "yes") {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
