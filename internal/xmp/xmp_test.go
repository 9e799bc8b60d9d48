package xmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packet = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:xmp="http://ns.adobe.com/xap/1.0/" xmp:CreatorTool="Scanner 3000">
   <dc:creator><rdf:Seq><rdf:li>Jane Roe</rdf:li></rdf:Seq></dc:creator>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

func TestText(t *testing.T) {
	assert.Equal(t, "Scanner 3000\nJane Roe", Text([]byte(packet)))
	assert.Equal(t, "plain", Text([]byte("plain")))
}

func TestFind(t *testing.T) {
	data := append([]byte("GIF89a\x00\x01junk"), packet...)
	data = append(data, "\x01\xff\xfe trailing"...)
	found := Find(data)
	require.Len(t, found, 1)
	assert.Equal(t, packet, string(found[0]))

	assert.Empty(t, Find([]byte("no packet here")))
}
