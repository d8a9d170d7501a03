package provision

import "fmt"

// Gateway command vocabulary (RouterOS dialect). These strings are the
// contract with the gateway; the matching output patterns live in the
// telemetry parsers.

func listAddressesCmd(iface string) string {
	return fmt.Sprintf("/ip address print where interface=%s", iface)
}

func addAddressCmd(ip, iface string) string {
	return fmt.Sprintf("/ip address add address=%s/24 interface=%s", ip, iface)
}

func removeAddressCmd(ip string) string {
	return fmt.Sprintf(`/ip address remove [find address="%s/24"]`, ip)
}

func listNATCmd(port int) string {
	return fmt.Sprintf("/ip firewall nat print detail where dst-port=%d", port)
}

func addNATCmd(port int, target, comment string) string {
	return fmt.Sprintf(
		`/ip firewall nat add chain=dstnat action=dst-nat protocol=tcp dst-port=%d to-addresses=%s to-ports=22 comment="%s"`,
		port, target, comment,
	)
}

func removeNATCmd(port int, target string) string {
	return fmt.Sprintf("/ip firewall nat remove [find dst-port=%d to-addresses=%s]", port, target)
}
