package retrieval

import "strings"

// chunkText splits text on blank lines into pieces of at most size bytes.
// Paragraphs longer than size are cut at line boundaries, then hard cut.
func chunkText(text string, size int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > size {
			flush()
		}
		if len(para) <= size {
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(para)
			continue
		}
		for _, piece := range splitLong(para, size) {
			if cur.Len() > 0 && cur.Len()+len(piece)+1 > size {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString("\n")
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

func splitLong(para string, size int) []string {
	var out []string
	for _, line := range strings.Split(para, "\n") {
		for len(line) > size {
			out = append(out, line[:size])
			line = line[size:]
		}
		out = append(out, line)
	}
	return out
}
