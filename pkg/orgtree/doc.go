// Package orgtree answers ancestor and descendant queries over the
// organization → regional → store unit forest.
//
// Traversal is iterative with an explicit visited set. A unit reached twice
// produces a *hierarchy.CycleError instead of looping, and the violation is
// logged at error level since it indicates corrupt upstream data.
//
// The Index reads through a Source. MemorySource serves tests and embedded
// use; SQLSource reads the org_units table, issuing one query per tree level
// when walking descendants.
package orgtree
