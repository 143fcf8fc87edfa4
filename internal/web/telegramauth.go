package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// verifySignedFields проверяет подпись набора полей Telegram-логина.
// См. https://core.telegram.org/widgets/login#checking-authorization
//
// Строка проверки - отсортированные по ключу пары key=value, соединенные
// переводом строки, без поля hash. Ключ HMAC - SHA256 от токена бота.
func verifySignedFields(botToken string, fields map[string]string) bool {
	if botToken == "" {
		return false
	}

	checkHash, ok := fields["hash"]
	if !ok || checkHash == "" {
		return false
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	dataCheckString := strings.Join(parts, "\n")

	secretKey := sha256.Sum256([]byte(botToken))

	mac := hmac.New(sha256.New, secretKey[:])
	mac.Write([]byte(dataCheckString))
	calculated := hex.EncodeToString(mac.Sum(nil))

	// Сравнение за постоянное время
	return hmac.Equal([]byte(calculated), []byte(checkHash))
}
