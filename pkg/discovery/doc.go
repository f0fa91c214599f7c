/*
Package discovery turns selectors into a tree of descriptors.

Engines contribute ElementResolvers, which know how to map an opaque program element
(or one segment of a unique id) to a descriptor under a given parent, and a
SelectorTable, which maps each selector kind to the functions converting a selector
into element paths. The Driver composes them: it queries every resolver against every
candidate parent, merges results into the tree by unique id, resolves the children of
every selected container, and reports what it could not resolve as warnings rather
than failures.
*/
package discovery
