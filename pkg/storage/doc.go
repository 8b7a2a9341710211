// Package storage manages downloaded page artifacts on disk.
//
// Artifacts live under {root}/{lccn}/{year}/{month}/, one set of files
// per page: the PDF, the JP2 scan, the OCR text and a metadata record.
// Item ids are sanitized for filesystem use, and every write goes
// through a temporary file followed by an atomic rename, so interrupted
// downloads never leave a truncated file under an artifact's final
// name. A non-empty file at the final path counts as already
// downloaded.
//
// Usage:
//
//	manager, err := storage.NewManager("downloads")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	path := manager.ArtifactPath(lccn, date, itemID, ".pdf")
//	if !manager.Exists(path) {
//	    written, err := manager.Save(path, body)
//	    ...
//	}
package storage
