package segment

import (
	"fmt"

	"github.com/ProgrammerXX1/plagio/internal/text"
)

// ValidationResult carries every invariant violation found in a segment.
// OK is true iff Errors is empty.
type ValidationResult struct {
	OK     bool
	Errors []string
}

func (v *ValidationResult) addf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate loads a sealed segment and checks its invariants: doc-info
// length matches the header, postings are sorted by (h, did, pos), every
// posting's did is in range, its document has tok_len >= k, and its pos
// does not exceed tok_len - k.
func Validate(segDir string) ValidationResult {
	var vr ValidationResult

	data, err := Load(segDir)
	if err != nil {
		vr.addf("%v", err)
		return vr
	}

	infos, err := LoadDocInfo(segDir)
	if err != nil {
		vr.addf("%v", err)
	} else if uint32(len(infos)) != data.Header.NDocs {
		vr.addf("doc info size mismatch: docinfo=%d header.n_docs=%d", len(infos), data.Header.NDocs)
	}

	for i := 1; i < len(data.Postings); i++ {
		if data.Postings[i].Less(data.Postings[i-1]) {
			vr.addf("postings not sorted by (h,did,pos) at index %d", i)
			break
		}
	}

	for _, p := range data.Postings {
		if p.DID >= data.Header.NDocs {
			vr.addf("posting did %d out of range (n_docs=%d)", p.DID, data.Header.NDocs)
			break
		}
		tokLen := data.DocMeta[p.DID].TokLen
		if tokLen < text.KShingle {
			vr.addf("doc %d tok_len %d < k", p.DID, tokLen)
			break
		}
		if p.Pos > tokLen-text.KShingle {
			vr.addf("posting pos %d out of range for doc %d (tok_len=%d)", p.Pos, p.DID, tokLen)
			break
		}
	}

	vr.OK = len(vr.Errors) == 0
	return vr
}
