package phonetic

// rushengChars holds characters that carry the checked tone (入声) in the
// Chenxu dialect. Mandarin merged the checked tone into the other four tones;
// its survival is the strongest single marker of an authentic reading.
var rushengChars = runeSet(
	"白竹石十一七吃日月客百尺作不出德" +
		"发国活急脚渴力六没木入实室叔熟术" +
		"束速宿塔铁托屋夕息习席赤色识失湿" +
		"拾舌设涉射社胜诗狮施什食蚀")

// zhuzhuangChars holds characters whose Mandarin retroflex initials
// (zh/ch/sh, 知组) surface as dental sibilants in Chenxu speech. The set
// overlaps rushengChars; a character may carry both markers.
var zhuzhuangChars = runeSet(
	"知张中吹书穿水树说春船山师诗失" +
		"狮施湿十石时识实拾食蚀上少收手受")

// DialectWord is one entry of the Chenxu lexical table: a dialect word and
// its Mandarin gloss.
type DialectWord struct {
	Word  string
	Gloss string
}

// dialectWords is the ordered lexical table. Matched words are reported in
// this order regardless of where they appear in the text.
var dialectWords = []DialectWord{
	{"赶场", "赶集"},
	{"背篓", "背筐"},
	{"火塘", "火炉"},
	{"吊脚楼", "吊脚楼"},
	{"崽伢子", "男孩子"},
	{"妹伢子", "女孩子"},
	{"摆龙门阵", "聊天"},
	{"恰", "吃"},
	{"克", "去"},
	{"冇得", "没有"},
}

// dialectRunes is the set of every character that occurs in any dialect word.
// Heatmap shading uses per-character membership, so a lone 脚 (from 吊脚楼)
// still shades as dialect even without the full word present.
var dialectRunes = func() map[rune]struct{} {
	set := make(map[rune]struct{})
	for _, dw := range dialectWords {
		for _, r := range dw.Word {
			set[r] = struct{}{}
		}
	}
	return set
}()

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s)/3)
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

// DialectWords returns a copy of the lexical table in report order.
func DialectWords() []DialectWord {
	out := make([]DialectWord, len(dialectWords))
	copy(out, dialectWords)
	return out
}
