package token

import "time"

// NextQuotaReset returns the first instant of the calendar month following
// now, in now's location. The reset is anchored to "now" rather than to the
// previous reset date, matching how billing attribution downstream expects
// cycle boundaries to land; if resets are delayed (e.g. by downtime) the
// boundary shifts with them.
func NextQuotaReset(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
}

// QuotaDue reports whether the token's usage counter should roll over before
// its quota is compared.
func QuotaDue(t *EmbedToken, now time.Time) bool {
	return !t.QuotaResetAt.IsZero() && now.After(t.QuotaResetAt)
}
