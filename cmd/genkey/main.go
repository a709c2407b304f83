// Command genkey prints a fresh room key in exported (base64) form,
// suitable for manual registration or import.
package main

import (
	"fmt"

	"github.com/typow21/group-chat-gpt-frontend/internal/keystore"
)

func main() {
	key, err := keystore.Generate()
	if err != nil {
		panic(err)
	}

	fmt.Printf("Room key (base64): %s\n", keystore.Export(key))
}
