package fingerprint

import (
	"itp/internal/domain"
)

// Diff returns the function-level change set from old to new:
//   - file only in new: every function is Added
//   - file only in old: every function is Deleted
//   - file in both with a different digest: functions compare individually
//
// Files with equal digests contribute nothing, so Diff(x, x) is empty.
func Diff(old, new domain.WorkspaceFingerprint) domain.FingerprintDiff {
	diff := domain.NewFingerprintDiff()

	for path, cur := range new {
		prev, existed := old[path]
		if !existed {
			for name, digest := range cur.Functions {
				diff.Added.Add(cur, name, digest)
			}
			continue
		}
		if prev.Digest == cur.Digest {
			continue
		}

		for name, digest := range cur.Functions {
			prevDigest, had := prev.Functions[name]
			switch {
			case !had:
				diff.Added.Add(cur, name, digest)
			case prevDigest != digest:
				diff.Modified.Add(cur, name, digest)
			}
		}
		for name, digest := range prev.Functions {
			if _, kept := cur.Functions[name]; !kept {
				diff.Deleted.Add(prev, name, digest)
			}
		}
	}

	for path, prev := range old {
		if _, exists := new[path]; exists {
			continue
		}
		for name, digest := range prev.Functions {
			diff.Deleted.Add(prev, name, digest)
		}
	}

	return diff
}
