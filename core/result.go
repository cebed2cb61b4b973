package core

// ── Strategy ──────────────────────────────────────────────────────────────────

// Strategy tags.
const (
	TagSkip     = "skip"
	TagLossless = "lossless"
	TagAdaptive = "adaptive"
	TagCareful  = "careful"
	TagFallback = "fallback"
)

// Strategy is the encoding plan chosen for one image.  The set of variants
// is closed: Skip, Lossless, Adaptive and Careful.
type Strategy interface {
	Tag() string
	strategy()
}

// Skip returns the original bytes untouched.
type Skip struct{}

// Lossless encodes once in lossless mode.
type Lossless struct {
	Effort int // 0-6
}

// Adaptive searches the quality list in order.
type Adaptive struct {
	Qualities []int
}

// Careful searches the quality list in order with near-lossless
// preprocessing and full-resolution chroma.
type Careful struct {
	Qualities      []int
	NearLossless   int // 0-100
	SmartSubsample bool
}

func (Skip) Tag() string     { return TagSkip }
func (Lossless) Tag() string { return TagLossless }
func (Adaptive) Tag() string { return TagAdaptive }
func (Careful) Tag() string  { return TagCareful }

func (Skip) strategy()     {}
func (Lossless) strategy() {}
func (Adaptive) strategy() {}
func (Careful) strategy()  {}

// ── Verdict ───────────────────────────────────────────────────────────────────

// Verdict is the acceptance state of a candidate: Accepted or Fallback.
type Verdict interface {
	QualityScore() (quality int, ssim float64)
	verdict()
}

// Accepted marks a candidate that cleared the similarity threshold, or a
// skip/lossless result.
type Accepted struct {
	Quality int
	SSIM    float64
}

// Fallback marks a candidate that did not clear the threshold and needs
// manual review.
type Fallback struct {
	Quality int
	SSIM    float64
}

func (a Accepted) QualityScore() (int, float64) { return a.Quality, a.SSIM }
func (f Fallback) QualityScore() (int, float64) { return f.Quality, f.SSIM }

func (Accepted) verdict() {}
func (Fallback) verdict() {}

// ── Candidate ─────────────────────────────────────────────────────────────────

// Attempt records one encode+compare round of the search.
type Attempt struct {
	Quality   int
	SSIM      float64
	SizeBytes int
}

// CandidateResult is the single result the search controller emits per image.
type CandidateResult struct {
	Encoded      []byte
	Format       Format
	StrategyTag  string
	Verdict      Verdict
	HashDistance int
	Attempts     []Attempt
}

// Accepted reports whether the verdict is Accepted.  A nil verdict is not.
func (c *CandidateResult) Accepted() bool {
	if c == nil {
		return false
	}
	_, ok := c.Verdict.(Accepted)
	return ok
}

// Quality returns the quality the candidate was encoded at.
func (c *CandidateResult) Quality() int {
	if c == nil || c.Verdict == nil {
		return 0
	}
	q, _ := c.Verdict.QualityScore()
	return q
}

// SSIM returns the measured similarity of the candidate.
func (c *CandidateResult) SSIM() float64 {
	if c == nil || c.Verdict == nil {
		return 0
	}
	_, s := c.Verdict.QualityScore()
	return s
}

// SizeBytes returns the encoded size.
func (c *CandidateResult) SizeBytes() int {
	if c == nil {
		return 0
	}
	return len(c.Encoded)
}

// ── Outcome ───────────────────────────────────────────────────────────────────

// Outcome is the result of one conversion: the emitted candidate plus the
// optional diff image.
type Outcome struct {
	Candidate    *CandidateResult
	Diff         []byte
	OriginalSize int64
	SourceFormat Format
}

// Report is the flat record handed to collaborators.
type Report struct {
	Name         string  `json:"name,omitempty"`
	StrategyTag  string  `json:"strategy"`
	QualityUsed  int     `json:"quality"`
	SSIMScore    float64 `json:"ssim"`
	SizeBytes    int     `json:"size_bytes"`
	OriginalSize int64   `json:"original_size"`
	SourceFormat Format  `json:"source_format"`
	Format       Format  `json:"format"`
	Accepted     bool    `json:"accepted"`
	HashDistance int     `json:"hash_distance"`
	EncodedBytes []byte  `json:"-"`
	DiffBytes    []byte  `json:"-"`
	Error        string  `json:"error,omitempty"`
}

// Report flattens the outcome.
func (o *Outcome) Report() Report {
	c := o.Candidate
	return Report{
		StrategyTag:  c.StrategyTag,
		QualityUsed:  c.Quality(),
		SSIMScore:    c.SSIM(),
		SizeBytes:    c.SizeBytes(),
		OriginalSize: o.OriginalSize,
		SourceFormat: o.SourceFormat,
		Format:       c.Format,
		Accepted:     c.Accepted(),
		HashDistance: c.HashDistance,
		EncodedBytes: c.Encoded,
		DiffBytes:    o.Diff,
	}
}

// OutcomeOf extracts the outcome from a finished pipeline result.
func OutcomeOf(r *ProcessingResult) (*Outcome, bool) {
	if r == nil || r.Primary == nil || r.Primary.Candidate == nil {
		return nil, false
	}
	p := r.Primary
	return &Outcome{
		Candidate:    p.Candidate,
		Diff:         p.Diff,
		OriginalSize: p.OriginalSize,
		SourceFormat: p.Format,
	}, true
}

// Report flattens a batch entry, carrying the error text for failures.
func (b BatchResult) Report() Report {
	if b.Err != nil {
		return Report{Name: b.Name, Error: b.Err.Error()}
	}
	out, ok := OutcomeOf(b.Result)
	if !ok {
		return Report{Name: b.Name, Error: "no result"}
	}
	r := out.Report()
	r.Name = b.Name
	return r
}
