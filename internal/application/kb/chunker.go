package kb

import "strings"

// SplitWords 按词窗口切分文本，相邻分块保留 overlap 个重叠词。
// maxWords <= 0 时整段返回；overlap >= maxWords 时退化为无重叠。
func SplitWords(text string, maxWords, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWords <= 0 || len(words) <= maxWords {
		return []string{strings.Join(words, " ")}
	}
	if overlap < 0 {
		overlap = 0
	}
	step := maxWords - overlap
	if step <= 0 {
		step = maxWords
	}

	out := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
	}
	return out
}
