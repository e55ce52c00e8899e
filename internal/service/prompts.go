package service

import "fmt"

// 优化结果中的分段标记
const (
	markerFinalReply = "【最终客服回复】"
	markerNotes      = "【内部优化说明】"
)

// probePrompt 连接测试使用的固定提示词
const probePrompt = "请回复：连接成功"

func optimizePrompt(answer, background string, original, limit int) string {
	return fmt.Sprintf(`你是客服回复的优化编辑。本次任务是保守编辑，不是重写。

【编辑原则】
1. 原回复的结论和核心语义保持不变
2. 只调整表达、语气和专业边界
3. 仅在出现明显事实错误、专业表述不严谨、合规或误导风险时才允许纠正结论，
   并在%s中写明"纠正原因"

【字数限制】
- 原回复 %d 字
- 优化后最多 %d 字，超出将被拒绝

上下文：
%s

原始回复：
%s

输出格式：
%s
<优化后的回复，不超过 %d 字>

%s
<优化要点与原因，如有纠正写明"纠正原因：...">`,
		markerNotes, original, limit, background, answer, markerFinalReply, limit, markerNotes)
}

func reviewPrompt(answer, background string) string {
	return fmt.Sprintf(`你是客服回复的审核专家，请判断下面的回复是否准确、专业、合理。

上下文：
%s

待审核回复：
%s

输出格式：
【审核结论】= 合理 / 基本合理 / 需修改

【专业判断说明】
<准确性、专业性、友好度方面的判断>

【潜在风险或注意点】
<可能的风险与问题>

【修改建议】（结论为"需修改"或"基本合理"时提供）
<具体建议>

【修改后推荐回复】（结论为"需修改"时提供）
<推荐回复>

【修改依据】
<依据的专业原则>`, background, answer)
}

func riskPrompt(answer string) string {
	return fmt.Sprintf(`你是风险检测专家，请快速判断下面的客服回复是否存在误导、错误信息或不当表述。

待检测回复：
%s

只输出以下两行：
RISK = YES / NO
REASON = 一句话原因`, answer)
}
