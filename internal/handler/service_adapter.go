package handler

import (
	"github.com/hitoshi/menuya/internal/auth"
	"github.com/hitoshi/menuya/internal/menu"
	"github.com/hitoshi/menuya/internal/user"
)

// サービス層がハンドラーの要求するインターフェースをそのまま満たすことを
// コンパイル時に保証する。アダプタが必要になった場合はここに追加する。

var _ AuthServiceInterface = (*auth.Service)(nil)
var _ MenuServiceInterface = (*menu.Service)(nil)
var _ PublicMenuFinder = (*menu.Service)(nil)
var _ UserServiceInterface = (*user.Service)(nil)
