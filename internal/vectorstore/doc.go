// Package vectorstore is the partitioned index store: one isolated
// similarity-search collection per company plus a shared general
// collection.
//
// # Isolation
//
// A partition only ever holds chunks tagged with its own company (or, for
// the general partition, general chunks). Replace verifies every chunk
// before any backend write and fails with ErrCrossTenantContamination,
// leaving the committed partition untouched. Search results are checked
// against the partition again before they are returned.
//
// # Generations
//
// Replace never edits a partition in place. It builds a new generation
// (a fresh chromem collection, or a fresh Qdrant collection), commits it
// durably (manifest file for chromem, alias switch for Qdrant), then swaps
// it into the registry under the partition's exclusive lock. Readers see the
// old generation or the new one, never a mix.
//
// # Usage
//
//	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{Path: dir}, logger)
//	if err != nil {
//	    return err
//	}
//	store := vectorstore.NewStore(backend, logger)
//	if err := store.Restore(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Replace(ctx, hierarchy.CompanyPartition("acme"), docs)
//
//	target, _ := scope.Target(hierarchy.LevelDepartment)
//	results, err := store.Search(ctx, target, queryVector, 5)
package vectorstore
