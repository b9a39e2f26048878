// Package core provides the business logic behind DataFinder's searches and
// merges.
//
// It sits between the transport layers (the cobra CLI and the chi web
// server) and the packages that do the work: loader reads tables, match
// runs the criteria engine, merge annotates client files with phones and
// verify inspects produced workbooks. Nothing here knows about HTTP or
// terminals, so the same [Service] backs both front ends and the tests.
//
// # Sessions
//
// A [Session] holds one source table, one query table, the criteria and
// the last result. Loading a table replaces the previous one only when the
// load succeeds:
//
//	s := core.NewSession(ldr, logger, monitor)
//	s.LoadSource("clientes.xlsx", loader.Options{Raw: true})
//	s.LoadQuery("busca.csv", loader.Options{})
//	s.AddCriterion(match.Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: match.OpContains})
//	result, err := s.Execute(nil)
//
// # Runs
//
// [Service.RunMatch] and [Service.RunMerge] validate the request, take a
// slot from the [RunLimiter], do the work in a fresh session and record the
// outcome in the run history when one is configured. The raw extractor
// unpacks into a single temp directory, so the limiter admits one run at a
// time by default; a caller that waits longer than the configured maximum
// gets [ErrBusy].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE006: File errors (missing, format, extraction, output)
//   - MATCH001-MATCH003: Search errors (not ready, unknown column, no results)
//   - MERGE001-MERGE002: Merge errors (no phones, nothing processed)
//   - REQ002: Invalid request
//   - RUN001-RUN003: Run errors (busy, cancelled, timed out)
package core
