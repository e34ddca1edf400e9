package main

// version is carried as a plain build-time constant the way
// cmd/quaero/internal/common.Version is, minus the file-based override
// machinery that package also supports (this binary has no installed
// ".version" file convention to read).
const version = "0.1.0"
