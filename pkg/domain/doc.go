/*
Package domain contains the core model shared by discovery and execution.

It defines the addressable test plan, the results reported for each node and the
error taxonomy used to classify failures. This package is kept free of I/O and of
any particular host model: program elements and node behavior are carried as opaque
payloads interpreted by host adapters.

# Key Entities

  - Descriptor: A node of the test plan (container, test, or both) addressed by a UniqueID.
  - Source: Where a descriptor comes from (file, directory, URI, program element).
  - Selector: A tagged request describing what discovery should resolve.
  - Result: The outcome of executing a node (successful, aborted, failed) with suppressed failures.
  - ReportEntry: An ordered set of key/value pairs published while a node executes.
  - ConfigurationParameters: Opaque string-keyed settings forwarded to extensions.
*/
package domain
