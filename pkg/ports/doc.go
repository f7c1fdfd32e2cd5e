/*
Package ports defines the driven ports (interfaces) for the espalier engine.

These interfaces decouple the dispatch core from external implementations,
allowing current-state storage to live wherever the host keeps it.

# Key Interfaces

  - StateCell: the read/write capability for "current state", supplied by the
    embedding application and treated by the engine as the single source of
    truth.

The package also exports RunStateCellContract, the behavioral contract every
cell adapter's test suite runs against its implementation.
*/
package ports
