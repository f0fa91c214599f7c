/*
Package uniqueid provides the canonical hierarchical address of every node in a test plan.

A UniqueID is an ordered, immutable sequence of typed segments describing the path from
the engine root to a node. Its string form is

	[engine:suite]/[container:Calculator]/[test:adds]

where the four delimiters are defined by a Format. DefaultFormat uses '[', ':', ']' and '/'.
Neither the type nor the value of a segment may contain one of those characters, which makes
Parse the exact inverse of String.
*/
package uniqueid
