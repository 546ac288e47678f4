// Package state holds the persisted record of applied spaces.
//
// A ProjectState maps environment names to EnvironmentStates, each of which
// maps logical space ids to SpaceStates. The document is stored as JSON by
// FileStore, which loads it lazily, keeps it in memory and saves it with an
// atomic rename.
//
// A corrupt file is treated as empty (with a warning) unless the store is
// created with StrictLoading, in which case Load returns ErrCorruptState.
package state
