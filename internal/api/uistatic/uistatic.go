// Package uistatic embeds the single-page UI served at "/".
package uistatic

import _ "embed"

//go:embed index.html
var Index []byte
