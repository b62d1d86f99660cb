package corpus

import (
	"fmt"
	"strings"
)

// systemPrompt primes the model as a Chenxu-cluster dialect expert. The three
// bracketed sections cover phonology, vocabulary, and grammar markers.
const systemPrompt = `你是湖南湘西辰溆片方言专家。辰溆片特征：
【音系】保留入声（短促调），知庄章组读如端组（书读如夫），日母读如泥母（人读如len）
【词汇】赶场、背篓、火塘、吊脚楼、崽伢子、妹伢子、摆龙门阵、酸鱼、油茶
【语法】"去"说"克/气"，"吃"说"恰/喫"，"没有"说"冇得"

任务：生成自然口语化的方言句子，用于语音识别训练。`

// buildUserPrompt renders the per-request instructions. specificFeatures, when
// present, becomes a mandatory feature line between the count and the fixed
// requirements.
func buildUserPrompt(req GenerateRequest) string {
	featureLine := ""
	if len(req.SpecificFeatures) > 0 {
		featureLine = "必须包含音系特征：" + strings.Join(req.SpecificFeatures, "、")
	}

	return fmt.Sprintf(`主题：%s
难度：%s
数量：%d句
%s

要求：
1. 必须包含大量入声字（白、竹、石、十、一、七、吃、日、月、客、百、尺、作）
2. 使用方言词汇替代普通话（如不说"逛街"说"赶场"）
3. 句子长度控制在12-20字，适合朗读
4. 内容贴近湘西农村日常生活（农事、天气、赶集、饮食）

请只输出JSON，格式如下：
{"sentences":[{"text":"...","features":["..."]}]}`,
		req.Topic, req.Difficulty, req.Count, featureLine)
}
