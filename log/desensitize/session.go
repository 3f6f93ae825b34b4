package desensitize

const masked = "******"

var (
	// SeshCookieRule 掩盖 Cookie 头中的 sesh=<token>-<seriesId>
	SeshCookieRule = MustNewContentRule(
		"sesh_cookie",
		`sesh=[^;"\s]+`,
		"sesh="+masked,
	)

	// TokenRule token 字段
	TokenRule = MustNewFieldRule("token", "token", masked)

	// SeriesIDRule series_id 字段，泄露后可被用于伪造 cookie
	SeriesIDRule = MustNewFieldRule("series_id", "series_id", masked)

	// PasswordRule password 字段
	PasswordRule = MustNewFieldRule("password", "password", masked)

	// SecretRule secret 字段
	SecretRule = MustNewFieldRule("secret", "secret", masked)
)

// SessionRules 返回会话相关的内置规则。const_token 是对外身份，不做掩盖。
func SessionRules() []Rule {
	return []Rule{
		SeshCookieRule,
		TokenRule,
		SeriesIDRule,
		PasswordRule,
		SecretRule,
	}
}
