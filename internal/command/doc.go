// Package command decodes inbound page submissions into typed command
// descriptors.
//
// Two command kinds share one shape:
//
//   - create: build a new sector page (company + sector required)
//   - refine: edit an existing page by slug with free-text instructions
//
// Decoding trims every text field, turns absent fields into empty values,
// keeps only real file attachments from the repeated "documents" field and
// splits the "links" field on newlines and commas. Upload type and size are
// not checked here; the publishing agent owns document parsing.
package command
