package calling

type Config struct {
	STUNServers []string
	UDPPortMin  uint16
	UDPPortMax  uint16
}
