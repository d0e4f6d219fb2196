// Package storage defines the object-storage / distributed-filesystem
// collaborator (mkdir/rmdir/put) the orchestrator drives between the
// shredding pass and the warehouse load step. Extraction and the warehouse
// driver have their own collaborator interfaces (docsource, warehouse); this
// one is for whatever holds the shredded fragment files in between.
package storage

import "context"

// Storage is idempotent by contract: Mkdir and Rmdir are safe to call on a
// path that already is/isn't present, and Put may be retried freely by the
// caller (orchestrator.WithRetry) on transient failure without risking a
// partial/duplicated object.
type Storage interface {
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Put(ctx context.Context, localPath, remoteDir string) error
}
