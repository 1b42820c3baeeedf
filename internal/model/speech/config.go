package speech

// RecognitionOptions 单次识别会话的配置
type RecognitionOptions struct {
	Language       string `json:"lang"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interimResults"`
}

// DefaultOptions 返回默认配置：单句识别，只返回最终结果
func DefaultOptions(language string) RecognitionOptions {
	return RecognitionOptions{Language: language}
}

// Availability 语音能力检测结果
type Availability struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}

// Supported 表示能力可用
func Supported() Availability {
	return Availability{Supported: true}
}

// Unsupported 表示能力不可用，reason 用于日志
func Unsupported(reason string) Availability {
	return Availability{Reason: reason}
}
