// Package docqa answers natural-language questions about a folder of
// inspection reports.
//
// Documents are extracted page by page, split into overlapping chunks,
// embedded and stored in a vector index together with references to the
// images found on each page. A question is embedded the same way, matched
// against the index, and answered by a chat model from the best chunks.
//
// Engine wires the stages together from a config.Config:
//
//	cfg, err := config.Load("docqa.yaml")
//	if err != nil {
//		return err
//	}
//	engine, err := docqa.NewEngine(cfg, docqa.WithAPIKey(cfg.APIKey()))
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	if _, err := engine.IngestDirectory(ctx, ""); err != nil {
//		return err
//	}
//	ans, err := engine.Ask(ctx, "Where is the hail damage?", 0)
//
// The stages are usable on their own: see packages extract, chunk,
// ingestion, storage, search and answer.
package docqa
