package media

import "github.com/opd-ai/callcore/wire"

// negotiateOutgoingCodec computes the video codec this side should
// encode with, per spec §4.4: "the chosen outgoing codec is the first
// in the intersection that the local encoder set supports." All
// formats either side advertises are decodable (spec §3: "the rest are
// decode-only"); EncodersCount only narrows what the advertiser can
// encode, not what it can decode, so intersection membership alone
// already proves the remote can decode it.
//
// local and remote are the VideoFormats each side offered.
func negotiateOutgoingCodec(local, remote wire.VideoFormats) (name string, ok bool) {
	localEncodable := formatNameSet(local.Formats[:min(int(local.EncodersCount), len(local.Formats))])

	intersection := codecIntersection(local.Formats, remote.Formats)
	for _, name := range intersection {
		if localEncodable[name] {
			return name, true
		}
	}
	return "", false
}

// codecIntersection returns codec names present in both lists, ordered
// per local's ordering (spec §4.4: "ordered sequence of codecs present
// in both the local list and the remote list").
func codecIntersection(local, remote []wire.VideoFormat) []string {
	remoteNames := formatNameSet(remote)
	var out []string
	for _, f := range local {
		if remoteNames[f.Name] {
			out = append(out, f.Name)
		}
	}
	return out
}

func formatNameSet(formats []wire.VideoFormat) map[string]bool {
	set := make(map[string]bool, len(formats))
	for _, f := range formats {
		set[f.Name] = true
	}
	return set
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
