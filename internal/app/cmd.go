package app

import (
	"errors"
	"fmt"
)

// Command はバイナリのサブコマンド。
type Command string

const (
	// CommandServe はHTTPサーバーを起動する。引数省略時の既定。
	CommandServe Command = "serve"
	// CommandMigrate はDATABASE_URLの方言に合わせてマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のサーバーの/healthを叩いて終了する。
	// distrolessイメージにはcurlが無いためDockerのHEALTHCHECKから使う。
	CommandHealthcheck Command = "healthcheck"
)

// ErrUnknownCommand は未知のサブコマンドが指定されたことを表す。
var ErrUnknownCommand = errors.New("unknown command")

var commands = []Command{CommandServe, CommandMigrate, CommandHealthcheck}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数が無ければserveとする。綴り違いでサーバーが起動しないよう、未知の値はエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	for _, c := range commands {
		if string(c) == args[0] {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of %v)", ErrUnknownCommand, args[0], commands)
}
