package telegram

// Command представляет команду бота
type Command string

const (
	CmdStart  Command = "start"
	CmdStatus Command = "status"
	CmdHelp   Command = "help"
	CmdTest   Command = "test"
)

func (c Command) String() string {
	return string(c)
}

func (c Command) IsValid() bool {
	switch c {
	case CmdStart, CmdStatus, CmdHelp, CmdTest:
		return true
	}
	return false
}

// IsAdminOnly - проверка панели доступна только супер-админу
func (c Command) IsAdminOnly() bool {
	return c == CmdTest
}

// CallbackData представляет callback данные inline-кнопок
type CallbackData string

const (
	CallbackRegister CallbackData = "register"
	CallbackStatus   CallbackData = "status"
	CallbackHelp     CallbackData = "help"
)

func (c CallbackData) String() string {
	return string(c)
}
