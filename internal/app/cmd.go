package app

// Command はmenuyaバイナリの起動モードを表す。
// APIコンテナとワーカーコンテナは同一イメージをサブコマンド違いで起動する。
type Command string

const (
	// CommandServe はメニュー管理APIサーバーとして起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの掃除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションのみを実行して終了することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はAPIサーバーの死活確認を行うことを示す。
	// シェルを持たないdistrolessイメージのDocker HEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数なし・未知のサブコマンドはいずれもserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
