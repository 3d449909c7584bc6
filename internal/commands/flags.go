package commands

import "github.com/Tyrowin/nexchat/internal/chat"

// Flags holds the global options shared by every command.
type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	EnvFile    string

	// ServerURL and User are used by the client commands.
	ServerURL string
	User      string
}

// UserID returns the --user flag as an identity.
func (f *Flags) UserID() (chat.UserID, error) {
	user := chat.UserID(f.User)
	if err := chat.ValidateUserID(user); err != nil {
		return "", err
	}
	return user, nil
}
