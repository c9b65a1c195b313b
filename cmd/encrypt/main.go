// Command encrypt prints the encrypted_password value for a device's basic auth password.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"generichttp/pkg/config"
	"generichttp/pkg/database"
)

func main() {
	configPath := flag.String("config", ".", "directory holding app.yaml and .env")
	flag.Parse()

	conf, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	password := flag.Arg(0)
	if password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "failed to read password:", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	enc, err := database.EncryptPassword(password, conf.EncryptionKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encryption failed:", err)
		os.Exit(1)
	}
	fmt.Println(enc)
}
