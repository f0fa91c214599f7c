/*
Package ports defines the interfaces connecting the engine to host adapters and to
the outside world.

These interfaces decouple the discovery and execution core from any particular test
model, result backend or scripting language.

# Key Interfaces

  - ExecutionListener: Receives lifecycle events (started, skipped, finished, dynamic registration, report entries).
  - ExtensionProvider, InstanceFactory, Executable, DynamicTestFactory: Node behavior carried by descriptor payloads.
  - ResultStore: Persists per-run results so failed tests can be re-selected later.
  - Locker: Serializes concurrent runs of the same plan, possibly across processes.
  - ScriptEvaluator: Evaluates boolean expressions for script based conditions.
*/
package ports
