/*
Package reconciler periodically rebuilds secondary and vector indexes
to repair drift between a collection's entities and its indexes: the
kind of drift a crash between an entity write and its index write
could leave behind, or that restoring a checkpoint without its vector
blobs introduces.

Reconciler holds no cluster state of its own; each cycle asks the
engine for the distinct collections with a registered index descriptor
and calls RebuildIndex on each.

	rec := reconciler.NewReconciler(eng, 10*time.Second)
	rec.Start()
	defer rec.Stop()
*/
package reconciler
