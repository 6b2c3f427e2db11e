package model

import "time"

// Operation is one CLI invocation recorded in the ledger.
type Operation struct {
	ID         int64 // autoincrement
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	FinishedAt *time.Time
}

// SignedPackage is a package produced on this host.
type SignedPackage struct {
	ID             string // package_id from the manifest
	OperationID    int64
	SourceHash     string
	SourceFilename string
	DigestHash     string
	PackageDir     string
	CreatedAt      time.Time
}

// Verification is the outcome of one verify run.
type Verification struct {
	ID             string // UUID
	OperationID    int64
	PackageID      string
	CandidatePath  string
	CandidateHash  string
	Verdict        string // "pass" or "fail"
	Reason         string
	MinWindowScore *float64
	CreatedAt      time.Time
}

// Publication records a package archive stored in a vault.
type Publication struct {
	ID          string // UUID
	OperationID int64
	PackageID   string
	Vault       string
	Checksum    string // SHA-256 of the stored blob
	Size        int64
	Sealed      bool
	CreatedAt   time.Time
}

// HistoryEntry is an operation with its verification outcome, if it was a verify run.
type HistoryEntry struct {
	Operation    Operation
	Verification *Verification
}
