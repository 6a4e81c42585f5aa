package wireguard

import (
	"errors"
	"fmt"
)

var ErrNoFreeAddresses = errors.New("no free addresses in client network")

// AllocateIP возвращает первый свободный адрес в клиентской /16-сети,
// сканируя по возрастанию. Первые start адресов нулевого блока пропускаются
// (сеть и адрес сервера), как и широковещательный адрес.
// Сериализация сканирования — забота вызывающего (advisory-блокировка).
func AllocateIP(prefix string, start int, used map[string]bool) (string, error) {
	if start < 1 {
		start = 1
	}
	for third := 0; third <= 255; third++ {
		for fourth := 0; fourth <= 255; fourth++ {
			if third == 0 && fourth < start {
				continue
			}
			if third == 255 && fourth == 255 {
				continue
			}
			ip := fmt.Sprintf("%s.%d.%d", prefix, third, fourth)
			if !used[ip] {
				return ip, nil
			}
		}
	}
	return "", ErrNoFreeAddresses
}
