package model

// Article is one addressable NNTP segment (spec §3). It is owned by its
// File; all cross-references go through the queue arena by (collection
// id, file index, article index) rather than a back-pointer (§9 "Cyclic
// ownership").
type Article struct {
	Index      int
	MessageID  string
	Size       int64
	Status     ArticleStatus
	CRC        uint32
	CRCValid   bool
	Retries    int
	TriedLevel int // server level the article is currently required at; starts at 0, EscalateToNextLevel adds 1
	// FailedGroups records the server groups this article has already
	// failed on at its current level, so the pool's acquire() can
	// exclude them (§4.1 Policy).
	FailedGroups map[string]bool
	// LevelAttempts counts not-found/mismatch failures at the current
	// TriedLevel, reset on every escalation (§4.3 "a configured number of
	// failed attempts at level N" before the coordinator escalates).
	LevelAttempts int
}

// NewArticle builds a pending article ready for scheduling.
func NewArticle(index int, messageID string, size int64) *Article {
	return &Article{
		Index:        index,
		MessageID:    messageID,
		Size:         size,
		Status:       ArticlePending,
		FailedGroups: make(map[string]bool),
	}
}

// MarkRunning transitions a pending article to running.
func (a *Article) MarkRunning() {
	a.Status = ArticleRunning
}

// MarkSucceeded finishes an article with its decoded CRC.
func (a *Article) MarkSucceeded(crc uint32) {
	a.Status = ArticleFinishedOK
	a.CRC = crc
	a.CRCValid = true
}

// MarkFailed permanently fails an article (no more servers/levels to try,
// or retries exhausted).
func (a *Article) MarkFailed() {
	a.Status = ArticleFailed
}

// RequeueAfterTransientError reverts a running article to pending and
// bumps its retry counter (§4.2 operation 6).
func (a *Article) RequeueAfterTransientError() {
	a.Status = ArticlePending
	a.Retries++
}

// EscalateLevel records a failure on failedGroup at the current tier so
// acquire() excludes that group for this article. It leaves the tier
// unchanged; EscalateToNextLevel moves the tier up.
func (a *Article) EscalateLevel(failedGroup string) {
	if failedGroup != "" {
		a.FailedGroups[failedGroup] = true
	}
}

// EscalateToNextLevel moves the article to the next tier and clears its
// excluded groups. The coordinator calls it once ArticleLevelAttempts
// not-found/mismatch failures have accumulated at the current tier.
func (a *Article) EscalateToNextLevel() {
	a.TriedLevel++
	a.FailedGroups = make(map[string]bool)
}

// RequiredLevel is the tier this article must next be served at.
func (a *Article) RequiredLevel() int {
	return a.TriedLevel
}
