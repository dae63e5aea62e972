package deploy

import shellquote "github.com/kballard/go-shellquote"

func shQuote(s string) string { return shellquote.Join(s) }
