package tools

import (
	"context"
	"errors"

	"github.com/harun/daisy/internal/observability"
	"github.com/harun/daisy/pkg/docstore"
	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
)

const scribeKind = "scribe"

// DocumentStore is the persistence the documents tool needs.
// *docstore.Store satisfies it.
type DocumentStore interface {
	Create(ctx context.Context, kind string, fields map[string]any) (docstore.Document, error)
	Update(ctx context.Context, id string, partial map[string]any) (docstore.Document, error)
	Get(ctx context.Context, id string) (docstore.Document, error)
}

// Documents saves, amends and reads back scribe notes. It answers to
// several call names and picks the action from the name in the context.
type Documents struct {
	store  DocumentStore
	logger zerolog.Logger
}

// NewDocuments creates the documents tool. A nil store leaves the tool
// advertised but failing at call time.
func NewDocuments(store DocumentStore, logger zerolog.Logger) *Documents {
	return &Documents{store: store, logger: logger}
}

func (d *Documents) Declarations() []toolmanager.Declaration {
	save := toolmanager.Object()
	save.Properties["fields"] = soapSchema()
	save.Properties["fields"].Description = "The completed SOAP note to store."
	save.Required = []string{"fields"}

	partial := soapSchema()
	partial.Required = nil
	partial.Description = "Only the SOAP note fields to change."
	update := toolmanager.Object(
		toolmanager.Parameter{Name: "documentId", Type: "string", Description: "Id returned when the document was saved.", Required: true},
	)
	update.Properties["fields"] = partial
	update.Required = append(update.Required, "fields")

	return []toolmanager.Declaration{
		{
			Name:        "saveScribe",
			Description: "Saves a completed SOAP note and returns its document id.",
			Parameters:  save,
		},
		{
			Name:        "updateDocument",
			Description: "Amends fields of a previously saved SOAP note.",
			Parameters:  update,
		},
		{
			Name:        "getDocument",
			Description: "Reads back a previously saved SOAP note.",
			Parameters: toolmanager.Object(
				toolmanager.Parameter{Name: "documentId", Type: "string", Description: "Id returned when the document was saved.", Required: true},
			),
		},
	}
}

func (d *Documents) Execute(ctx context.Context, args map[string]any) (any, error) {
	if d.store == nil {
		return nil, toolmanager.ExecutionError("document storage is not configured: missing data_dir")
	}

	switch name := toolmanager.CallNameFromContext(ctx); name {
	case "saveScribe":
		return d.save(ctx, args)
	case "updateDocument":
		return d.update(ctx, args)
	case "getDocument":
		return d.get(ctx, args)
	default:
		return nil, toolmanager.ExecutionError("documents tool cannot handle call %q", name)
	}
}

func (d *Documents) save(ctx context.Context, args map[string]any) (any, error) {
	raw, err := objectArg(args, "fields")
	if err != nil {
		return nil, err
	}
	note, err := normalizeSOAP(raw)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(note))
	for k, v := range note {
		fields[k] = v
	}

	doc, err := d.store.Create(ctx, scribeKind, fields)
	if err != nil {
		observability.RecordRecordAccess(ctx, "create", "", "failure")
		return nil, toolmanager.ExecutionError("failed to save document: %v", err)
	}
	observability.RecordRecordAccess(ctx, "create", doc.ID, "success")
	d.logger.Info().Str("document_id", doc.ID).Str("call_id", toolmanager.CallIDFromContext(ctx)).Msg("Scribe saved")

	return map[string]any{"documentId": doc.ID, "version": doc.Version}, nil
}

func (d *Documents) update(ctx context.Context, args map[string]any) (any, error) {
	id, err := requiredString(args, "documentId")
	if err != nil {
		return nil, err
	}
	raw, err := objectArg(args, "fields")
	if err != nil {
		return nil, err
	}

	partial := make(map[string]any, len(raw))
	for _, f := range soapFields {
		v, ok := raw[f.name]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, toolmanager.ExecutionError("field %s must be a string", f.name)
		}
		partial[f.name] = s
	}
	if len(partial) == 0 {
		return nil, toolmanager.ExecutionError("no known fields to update")
	}

	doc, err := d.store.Update(ctx, id, partial)
	if err != nil {
		observability.RecordRecordAccess(ctx, "update", id, "failure")
		return nil, storeError(id, err)
	}
	observability.RecordRecordAccess(ctx, "update", id, "success")
	d.logger.Info().Str("document_id", id).Str("call_id", toolmanager.CallIDFromContext(ctx)).Msg("Document updated")

	return map[string]any{"documentId": doc.ID, "version": doc.Version}, nil
}

func (d *Documents) get(ctx context.Context, args map[string]any) (any, error) {
	id, err := requiredString(args, "documentId")
	if err != nil {
		return nil, err
	}

	doc, err := d.store.Get(ctx, id)
	if err != nil {
		observability.RecordRecordAccess(ctx, "read", id, "failure")
		return nil, storeError(id, err)
	}
	observability.RecordRecordAccess(ctx, "read", id, "success")
	return doc, nil
}

func storeError(id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return toolmanager.ExecutionError("document not found: %s", id)
	}
	return toolmanager.ExecutionError("document store error: %v", err)
}
