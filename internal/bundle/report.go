package bundle

import (
	"ctxpack/internal/assemble"
	"ctxpack/internal/ctxerr"
)

// Report is the observability record written by `assemble --report`.
// Metrics is null when the run failed before a manifest existed.
type Report struct {
	OK                        bool              `json:"ok"`
	Hash                      string            `json:"hash"`
	Metrics                   *assemble.Metrics `json:"metrics"`
	CtxpackTokensTotal        int               `json:"ctxpack_tokens_total"`
	CtxpackFilesTotal         int               `json:"ctxpack_files_total"`
	CtxpackEvictionsTotal     int               `json:"ctxpack_evictions_total"`
	CtxpackDedupPointersTotal int               `json:"ctxpack_dedup_pointers_total"`
	Error                     string            `json:"error,omitempty"`
	Message                   string            `json:"message,omitempty"`
}

// NewReport summarizes a successful run.
func NewReport(m *assemble.Manifest) Report {
	mt := m.Metrics
	return Report{
		OK:                        true,
		Hash:                      m.Hash,
		Metrics:                   &mt,
		CtxpackTokensTotal:        mt.TokensTotal,
		CtxpackFilesTotal:         mt.FilesTotal,
		CtxpackEvictionsTotal:     mt.EvictionsTotal,
		CtxpackDedupPointersTotal: mt.DedupPointersTotal,
	}
}

// FailureReport records a failed run with its taxonomy code.
func FailureReport(err error) Report {
	r := Report{Error: string(ctxerr.CodeOf(err))}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}
