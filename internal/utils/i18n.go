package utils

// Server-side strings only: health text and error messages. UI copy lives in the frontend.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":                   "ok",
		"error.invalid":               "invalid request",
		"error.unauthorized":          "authentication required",
		"error.authorization":         "you do not have access to this resource",
		"error.not_found":             "not found",
		"error.user_not_found":        "user not found",
		"error.self_invitation":       "you cannot invite yourself",
		"error.duplicate_invitation":  "user already invited to this survey",
		"error.duplicate_submission":  "this invitation has already been completed",
		"error.incomplete_submission": "all questions must be answered",
		"error.conflict":              "conflicting change, please retry",
		"error.email_taken":           "email already registered",
		"error.bad_credentials":       "invalid email or password",
		"error.too_many_requests":     "too many requests",
		"error.internal":              "internal error",
	},
	"zh": {
		"health.ok":                   "好的",
		"error.invalid":               "请求无效",
		"error.unauthorized":          "需要登录",
		"error.authorization":         "无权访问该资源",
		"error.not_found":             "未找到",
		"error.user_not_found":        "用户不存在",
		"error.self_invitation":       "不能邀请自己",
		"error.duplicate_invitation":  "该用户已被邀请参加此问卷",
		"error.duplicate_submission":  "该邀请已完成",
		"error.incomplete_submission": "请回答所有问题",
		"error.conflict":              "数据已变更，请重试",
		"error.email_taken":           "邮箱已被注册",
		"error.bad_credentials":       "邮箱或密码错误",
		"error.too_many_requests":     "请求过于频繁",
		"error.internal":              "服务器内部错误",
	},
}

// Lookup returns the translation for key in locale without any fallback.
func Lookup(locale, key string) (string, bool) {
	v, ok := translations[locale][key]
	return v, ok
}

// T returns the translated string for key in locale; falls back to English, then the key.
func T(locale, key string) string {
	if v, ok := Lookup(locale, key); ok {
		return v
	}
	if v, ok := Lookup("en", key); ok {
		return v
	}
	return key
}
